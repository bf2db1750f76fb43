package settings

// MergeDefaults fills defaults in under existing. Existing values win at every
// nested level, including an explicit null; nested objects missing from
// existing are taken from defaults wholesale. A nil existing returns defaults.
func MergeDefaults(existing, defaults map[string]any) map[string]any {
	if existing == nil {
		return defaults
	}
	merged := make(map[string]any, len(existing)+len(defaults))
	for k, v := range existing {
		merged[k] = v
	}
	for k, dv := range defaults {
		ev, ok := merged[k]
		if !ok {
			merged[k] = dv
			continue
		}
		dm, dIsMap := dv.(map[string]any)
		em, eIsMap := ev.(map[string]any)
		if dIsMap && eIsMap {
			merged[k] = MergeDefaults(em, dm)
		}
	}
	return merged
}

// servicesComplete reports whether pushServices has both built-in service
// objects, each with a string name.
func servicesComplete(doc map[string]any) bool {
	if doc == nil {
		return false
	}
	for _, key := range []string{ServiceWechat, ServiceBark} {
		svc, ok := doc[key].(map[string]any)
		if !ok {
			return false
		}
		if _, ok := svc["name"].(string); !ok {
			return false
		}
	}
	return true
}

// pushSettingsComplete reports whether both templates are non-empty strings
// and includeSource is a boolean.
func pushSettingsComplete(doc map[string]any) bool {
	if doc == nil {
		return false
	}
	if s, ok := doc["textTemplate"].(string); !ok || s == "" {
		return false
	}
	if s, ok := doc["urlTemplate"].(string); !ok || s == "" {
		return false
	}
	_, ok := doc["includeSource"].(bool)
	return ok
}
