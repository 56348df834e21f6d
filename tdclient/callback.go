package tdclient

// Callback bundles the update handlers an application registers with a
// Client. Unset fields are skipped. The Client invokes handlers from
// its receive loop, so handlers must not block for long; hand heavy
// work to a queue instead.
type Callback struct {
	AuthorizationState func(update *UpdateAuthorizationState)
	NewChat            func(update *UpdateNewChat)
	ChatTitle          func(update *UpdateChatTitle)
	User               func(update *UpdateUser)
	NewMessage         func(update *UpdateNewMessage)
}

func (c *Callback) executeAuthorizationState(update *UpdateAuthorizationState) {
	if c != nil && c.AuthorizationState != nil {
		c.AuthorizationState(update)
	}
}

func (c *Callback) executeNewChat(update *UpdateNewChat) {
	if c != nil && c.NewChat != nil {
		c.NewChat(update)
	}
}

func (c *Callback) executeChatTitle(update *UpdateChatTitle) {
	if c != nil && c.ChatTitle != nil {
		c.ChatTitle(update)
	}
}

func (c *Callback) executeUser(update *UpdateUser) {
	if c != nil && c.User != nil {
		c.User(update)
	}
}

func (c *Callback) executeNewMessage(update *UpdateNewMessage) {
	if c != nil && c.NewMessage != nil {
		c.NewMessage(update)
	}
}
