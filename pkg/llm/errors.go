package llm

import (
	"fmt"
)

// ProviderError 记录回退链中单次尝试的失败。
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError 表示回退链中的所有项都失败了。
type ExhaustedError struct {
	Attempts []*ProviderError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed: no providers configured for this model group"
	}
	return fmt.Sprintf("all %d providers failed. Last error: %v", len(e.Attempts), e.Last())
}

// Last 返回最后一次尝试的错误。
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

func (e *ExhaustedError) Unwrap() []error {
	errs := []error{ErrAllProvidersExhausted}
	if last := e.Last(); last != nil {
		errs = append(errs, last)
	}
	return errs
}
