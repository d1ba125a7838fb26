package dto

type AdminStats struct {
	Users               int            `json:"users"`
	Listings            map[string]int `json:"listings"`
	ActiveConversations int            `json:"activeConversations"`
	TotalConversations  int            `json:"totalConversations"`
}

type AdminUserList struct {
	Users      []UserProfile `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

type AdminConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Pagination    Pagination     `json:"pagination"`
}

type BanResult struct {
	UserID   string `json:"userId"`
	IsBanned bool   `json:"isBanned"`
}

type FeatureResult struct {
	ListingID  string `json:"listingId"`
	IsFeatured bool   `json:"isFeatured"`
}

type ConversationActivation struct {
	ConversationID string `json:"conversationId"`
	IsActive       bool   `json:"isActive"`
}

// NewPagination derives page metadata from an offset window.
func NewPagination(offset, limit, total int) Pagination {
	if limit <= 0 {
		limit = 1
	}
	return Pagination{
		Page:  offset/limit + 1,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}
}
