package prompts

import "fmt"

type Validator func(in Input) error

func RequireNonEmpty(field string, get func(in Input) string) Validator {
	return func(in Input) error {
		if get(in) == "" {
			return fmt.Errorf("missing required prompt input %q", field)
		}
		return nil
	}
}
