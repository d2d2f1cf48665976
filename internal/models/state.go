package models

// UserState holds the conversational step of a user between updates.
// Stored in Redis with a TTL, falling back to memory.
type UserState struct {
	UserID      int64                  `json:"user_id"`
	CurrentStep string                 `json:"current_step"`
	TempData    map[string]interface{} `json:"temp_data,omitempty"`
}

func (s *UserState) GetInt(key string) int {
	if s == nil || s.TempData == nil {
		return 0
	}
	switch v := s.TempData[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s *UserState) GetString(key string) string {
	if s == nil || s.TempData == nil {
		return ""
	}
	if str, ok := s.TempData[key].(string); ok {
		return str
	}
	return ""
}
