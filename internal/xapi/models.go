package xapi

// SearchResponse is the subset of the v2 recent-search payload the pipeline reads.
type SearchResponse struct {
	Data     []Tweet  `json:"data"`
	Includes Includes `json:"includes"`
	Meta     Meta     `json:"meta"`
}

// Tweet is a single post in the data array.
type Tweet struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	AuthorID      string       `json:"author_id"`
	CreatedAt     string       `json:"created_at"`
	PublicMetrics TweetMetrics `json:"public_metrics"`
	Attachments   *Attachments `json:"attachments,omitempty"`
}

// TweetMetrics carries public engagement counters.
type TweetMetrics struct {
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
}

// Attachments lists media keys referenced by a post.
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Includes holds the expansion lookup tables.
type Includes struct {
	Users []User  `json:"users"`
	Media []Media `json:"media"`
}

// User is an expanded author.
type User struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Username        string      `json:"username"`
	ProfileImageURL string      `json:"profile_image_url"`
	Verified        bool        `json:"verified"`
	PublicMetrics   UserMetrics `json:"public_metrics"`
}

// UserMetrics carries audience counters.
type UserMetrics struct {
	FollowersCount int `json:"followers_count"`
}

// Media is an expanded attachment.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

// Meta carries paging information.
type Meta struct {
	ResultCount int    `json:"result_count"`
	NewestID    string `json:"newest_id"`
	OldestID    string `json:"oldest_id"`
	NextToken   string `json:"next_token"`
}
