package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/kvlink/kvlink/core/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() ISerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements the ISerializer interface using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey   byte = 1 << 0
	hasArgs  byte = 1 << 1
	hasValue byte = 1 << 2
	hasOk    byte = 1 << 3
	hasErr   byte = 1 << 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write request type
	result[0] = byte(msg.ReqType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after ReqType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		keyBytes := []byte(msg.Key)
		keyLen := len(keyBytes)

		// Write key length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(keyLen))
		pos += 4

		// Write key data
		copy(result[pos:pos+keyLen], keyBytes)
		pos += keyLen
	}

	// Handle Args
	if msg.Args != nil {
		flags |= hasArgs

		// Write arg count
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Args)))
		pos += 4

		// Write each arg with its own length prefix
		for _, arg := range msg.Args {
			argLen := len(arg)
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(argLen))
			pos += 4
			if argLen > 0 {
				copy(result[pos:pos+argLen], arg)
				pos += argLen
			}
		}
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		valueLen := len(msg.Value)

		// Write value length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(valueLen))
		pos += 4

		// Write value data
		if valueLen > 0 {
			copy(result[pos:pos+valueLen], msg.Value)
			pos += valueLen
		}
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos += 1
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		errBytes := []byte(msg.Err)
		errLen := len(errBytes)

		// Write error length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(errLen))
		pos += 4

		// Write error data
		copy(result[pos:pos+errLen], errBytes)
		pos += errLen
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (ReqType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read request type
	msg.ReqType = common.RequestType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	// Read Key if present
	if flags&hasKey != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for key length")
		}

		// Read key length
		keyLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(keyLen) > len(data) {
			return fmt.Errorf("data too short for key data")
		}

		// Read key data
		msg.Key = string(data[pos : pos+int(keyLen)])
		pos += int(keyLen)
	} else {
		msg.Key = ""
	}

	// Read Args if present
	if flags&hasArgs != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for arg count")
		}

		// Read arg count
		argCount := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		// Every argument carries at least its 4 byte length prefix, so
		// the remaining bytes bound any plausible count. Checked before
		// the allocation: the count is attacker-controlled wire data.
		if uint64(argCount) > uint64(len(data)-pos)/4 {
			return fmt.Errorf("arg count %d exceeds remaining data", argCount)
		}

		msg.Args = make([][]byte, argCount)
		for i := uint32(0); i < argCount; i++ {
			if pos+4 > len(data) {
				return fmt.Errorf("data too short for arg %d length", i)
			}

			argLen := binary.BigEndian.Uint32(data[pos : pos+4])
			pos += 4

			if pos+int(argLen) > len(data) {
				return fmt.Errorf("data too short for arg %d data", i)
			}

			arg := make([]byte, argLen)
			copy(arg, data[pos:pos+int(argLen)])
			msg.Args[i] = arg
			pos += int(argLen)
		}
	} else {
		msg.Args = nil
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for value length")
		}

		// Read value length
		valueLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(valueLen) > len(data) {
			return fmt.Errorf("data too short for value data")
		}

		// Read value data - reuse the caller's buffer when large enough
		if msg.Value == nil || cap(msg.Value) < int(valueLen) {
			msg.Value = make([]byte, valueLen)
		} else {
			msg.Value = msg.Value[:valueLen]
		}

		if valueLen > 0 {
			copy(msg.Value, data[pos:pos+int(valueLen)])
		}
		pos += int(valueLen)
	} else {
		msg.Value = nil
	}

	// Read Ok if present
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}

		msg.Ok = data[pos] != 0
		pos += 1
	} else {
		msg.Ok = false
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for error length")
		}

		// Read error length
		errLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(errLen) > len(data) {
			return fmt.Errorf("data too short for error data")
		}

		// Read error data
		msg.Err = string(data[pos : pos+int(errLen)])
		pos += int(errLen)
	} else {
		msg.Err = ""
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the exact number of bytes the serialized message needs
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2 // ReqType + flags

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Args != nil {
		size += 4
		for _, arg := range msg.Args {
			size += 4 + len(arg)
		}
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}
