package model

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Preferences holds the per-user display and accessibility settings.
type Preferences struct {
	FontScale    float64 `json:"fontScale"`
	ReduceMotion bool    `json:"reduceMotion"`
	AudioCues    bool    `json:"audioCues"`
}

// Session is the authenticated identity that drives every subscription.
type Session struct {
	UserID      string      `json:"userId"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Token       string      `json:"-"`
	Location    *Coordinate `json:"location,omitempty"`
	Preferences Preferences `json:"preferences"`
}

// User returns the user record backing the session.
func (s Session) User() User {
	return User{
		ID:          s.UserID,
		Name:        s.Name,
		Phone:       s.Phone,
		Location:    s.Location,
		Preferences: s.Preferences,
	}
}

// SessionFromUser builds a session for u carrying the given auth token.
func SessionFromUser(u User, token string) Session {
	return Session{
		UserID:      u.ID,
		Name:        u.Name,
		Phone:       u.Phone,
		Token:       token,
		Location:    u.Location,
		Preferences: u.Preferences,
	}
}
