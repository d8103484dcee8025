package auth

// SignupContext carries request-scoped signup state from the HTTP layer into
// identity bootstrap. InvitationHash is set when the user arrived through an
// invitation link.
type SignupContext struct {
	InvitationHash string `json:"invitation_hash,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// HasInvitation reports whether the signup should try to join an existing organization
func (c SignupContext) HasInvitation() bool {
	return c.InvitationHash != ""
}
