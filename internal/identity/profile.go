package identity

// Profile is the public view of an authenticated identifier.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ProfileFor builds the profile for a token subject.
func ProfileFor(subject string) Profile {
	return Profile{ID: subject, DisplayName: "User " + subject}
}
