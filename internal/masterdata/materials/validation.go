package materials

import (
	"errors"
	"strings"
)

func (s *Service) validate(m Material) error {
	if strings.TrimSpace(m.Code) == "" {
		return errors.New("material code is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("material name is required")
	}
	if m.Rate < 0 {
		return errors.New("material rate must be >= 0")
	}
	if m.MinimumStock < 0 {
		return errors.New("minimum stock must be >= 0")
	}
	return nil
}
