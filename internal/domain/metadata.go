package domain

// ProfileMetadata is optional display information for an account.
// Every field may be absent; a missing profile never excludes an account from graph logic.
type ProfileMetadata struct {
	Name          *string  // display name (nullable)
	Description   *string  // bio (nullable)
	AvatarURL     *string  // profile image (nullable)
	BackgroundURL *string  // background image (nullable)
	Tags          []string // free-form tags
}

// DisplayName returns Name or a placeholder derived from the account.
func (p *ProfileMetadata) DisplayName(account AccountID) string {
	if p != nil && p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return AnonymousName(account)
}

// AnonymousName is the placeholder shown when no profile is available.
func AnonymousName(account AccountID) string {
	s := string(account)
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
