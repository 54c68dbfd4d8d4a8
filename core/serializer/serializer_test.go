package serializer

import (
	"github.com/kvlink/kvlink/core/common"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() ISerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{ReqType: common.ReqPing},

		// Set request
		{
			ReqType: common.ReqSet,
			Key:     "test-key",
			Args:    [][]byte{[]byte("test-value")},
		},

		// Get reply
		{
			ReqType: common.ReqGet,
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Error reply
		{
			ReqType: common.ReqDel,
			Err:     "test error message",
		},

		// Custom request with multiple args
		{
			ReqType: common.ReqCustom,
			Args:    [][]byte{[]byte("SUBSCRIBE"), []byte("chan"), []byte("1")},
		},

		// Message with all fields filled
		{
			ReqType: common.ReqCustom,
			Key:     "test-key",
			Args:    [][]byte{[]byte("arg-0"), []byte("arg-1")},
			Value:   []byte("test-value"),
			Ok:      true,
			Err:     "",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestBinaryTruncatedInput tests that the binary serializer rejects
// truncated payloads instead of panicking
func TestBinaryTruncatedInput(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{
		ReqType: common.ReqSet,
		Key:     "some-key",
		Args:    [][]byte{[]byte("some-value")},
	})
	if err != nil {
		t.Fatalf("Failed to serialize message: %v", err)
	}

	// Every strict prefix of the payload must fail cleanly
	for cut := 0; cut < len(data); cut++ {
		var result common.Message
		if err := serializer.Deserialize(data[:cut], &result); err == nil {
			t.Errorf("Expected error deserializing %d/%d bytes, got none", cut, len(data))
		}
	}
}

// TestBinaryCorruptArgCount tests that a wire-supplied argument count far
// beyond the payload size is rejected before anything is allocated for it
func TestBinaryCorruptArgCount(t *testing.T) {
	serializer := NewBinarySerializer()

	for name, count := range map[string][]byte{
		"MaxUint32": {0xFF, 0xFF, 0xFF, 0xFF},
		"Large":     {0x00, 0x10, 0x00, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			// Type byte, hasArgs flag, then only the corrupt count
			data := append([]byte{byte(common.ReqPing), hasArgs}, count...)

			var result common.Message
			if err := serializer.Deserialize(data, &result); err == nil {
				t.Errorf("Expected error for corrupt arg count, got none")
			}
		})
	}
}
