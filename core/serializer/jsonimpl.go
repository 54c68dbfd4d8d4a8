package serializer

import (
	"encoding/json"
	"github.com/kvlink/kvlink/core/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	return json.Unmarshal(b, msg)
}
