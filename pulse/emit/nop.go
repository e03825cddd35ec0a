package emit

// NopEmitter discards all progress
type NopEmitter struct{}

// NewNop returns an emitter that discards everything
func NewNop() NopEmitter { return NopEmitter{} }

func (NopEmitter) EmitStage(string, string)                 {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}
