package schema

// ValidateNamespace ensures the namespace is a plain script identifier:
// [A-Za-z_$][A-Za-z0-9_$]*. It is spliced into scripts unquoted.
func ValidateNamespace(name string) error {
	if name == "" {
		return ErrInvalidNamespace
	}
	for i, r := range name {
		if r == '_' || r == '$' {
			continue
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return ErrInvalidNamespace
	}
	return nil
}
