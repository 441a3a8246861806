package wasmir

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// RuntimeConfig returns the runtime configuration shared by validation and
// bootstrap execution, so that both accept exactly the same feature set.
func RuntimeConfig() wazero.RuntimeConfig {
	return wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV2)
}

// ValidateError reports a module that decoded but failed validation.
type ValidateError struct {
	Name string
	Err  error
}

func (err ValidateError) Error() string {
	return fmt.Sprintf("%v: invalid module: %v", err.Name, err.Err)
}
func (err ValidateError) Unwrap() error { return err.Err }

// Validator validates binary modules by compiling them in a private runtime.
type Validator struct {
	rt wazero.Runtime
}

// NewValidator creates a Validator; callers must Close it.
func NewValidator(ctx context.Context) *Validator {
	return &Validator{rt: wazero.NewRuntimeWithConfig(ctx, RuntimeConfig())}
}

// Close releases the validation runtime.
func (v *Validator) Close(ctx context.Context) error {
	return v.rt.Close(ctx)
}

// Validate checks that b is a valid module.
func (v *Validator) Validate(ctx context.Context, name string, b []byte) error {
	compiled, err := v.rt.CompileModule(ctx, b)
	if err != nil {
		return ValidateError{name, err}
	}
	return compiled.Close(ctx)
}

// Read validates and then decodes b.
func (v *Validator) Read(ctx context.Context, name string, b []byte) (*Module, error) {
	if err := v.Validate(ctx, name, b); err != nil {
		return nil, err
	}
	return Decode(name, b)
}
