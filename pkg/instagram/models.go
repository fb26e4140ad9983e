package instagram

import (
	"time"
)

// InstagramResponse represents the top-level response of the profile and
// timeline endpoints
type InstagramResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
	Message         string `json:"message,omitempty"`
}

// Data wraps the user information in the response
type Data struct {
	User *User `json:"user"`
}

// PostResponse is the response of the single post query
type PostResponse struct {
	Data struct {
		ShortcodeMedia *Node `json:"shortcode_media"`
	} `json:"data"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// User represents an Instagram user profile
type User struct {
	ID                       string                   `json:"id"`
	Username                 string                   `json:"username"`
	FullName                 string                   `json:"full_name"`
	IsPrivate                bool                     `json:"is_private"`
	ProfilePicURL            string                   `json:"profile_pic_url"`
	ProfilePicURLHD          string                   `json:"profile_pic_url_hd"`
	EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`
}

// ProfilePic returns the best available profile picture URL
func (u *User) ProfilePic() string {
	if u.ProfilePicURLHD != "" {
		return u.ProfilePicURLHD
	}
	return u.ProfilePicURL
}

// EdgeOwnerToTimelineMedia contains one page of the user's posts
type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// EdgeCount is a GraphQL connection where only the count matters
type EdgeCount struct {
	Count int `json:"count"`
}

// CaptionEdges holds the caption text nodes of a post
type CaptionEdges struct {
	Edges []CaptionEdge `json:"edges"`
}

// CaptionEdge is one caption entry
type CaptionEdge struct {
	Node CaptionNode `json:"node"`
}

// CaptionNode carries the caption text
type CaptionNode struct {
	Text string `json:"text"`
}

// SidecarEdges holds the children of a carousel post
type SidecarEdges struct {
	Edges []Edge `json:"edges"`
}

// Node types reported in __typename
const (
	TypeImage   = "GraphImage"
	TypeVideo   = "GraphVideo"
	TypeSidecar = "GraphSidecar"
)

// Node represents a post, or a child of a carousel post
type Node struct {
	ID               string        `json:"id"`
	Typename         string        `json:"__typename,omitempty"`
	Shortcode        string        `json:"shortcode"`
	DisplayURL       string        `json:"display_url"`
	VideoURL         string        `json:"video_url,omitempty"`
	IsVideo          bool          `json:"is_video"`
	TakenAtTimestamp int64         `json:"taken_at_timestamp"`
	Caption          CaptionEdges  `json:"edge_media_to_caption"`
	Likes            EdgeCount     `json:"edge_media_preview_like"`
	Comments         EdgeCount     `json:"edge_media_to_comment"`
	Sidecar          *SidecarEdges `json:"edge_sidecar_to_children,omitempty"`
}

// TakenAt returns the post timestamp in UTC
func (n *Node) TakenAt() time.Time {
	return time.Unix(n.TakenAtTimestamp, 0).UTC()
}

// CaptionText returns the first caption text, if any
func (n *Node) CaptionText() string {
	if len(n.Caption.Edges) == 0 {
		return ""
	}
	return n.Caption.Edges[0].Node.Text
}

// IsSidecar reports whether the node is a carousel post
func (n *Node) IsSidecar() bool {
	return n.Typename == TypeSidecar || (n.Sidecar != nil && len(n.Sidecar.Edges) > 0)
}

// MediaItem is one downloadable file belonging to a post
type MediaItem struct {
	// Index is 0 for single-media posts and 1-based for carousel children
	Index   int
	URL     string
	IsVideo bool
}

// MediaItems expands a post into its downloadable files. A video whose
// video_url is missing (timeline pages often omit it) yields an item with an
// empty URL; the caller resolves it through FetchPost.
func (n *Node) MediaItems() []MediaItem {
	if !n.IsSidecar() {
		return []MediaItem{n.item(0)}
	}
	if n.Sidecar == nil {
		return nil
	}

	items := make([]MediaItem, 0, len(n.Sidecar.Edges))
	for i := range n.Sidecar.Edges {
		items = append(items, n.Sidecar.Edges[i].Node.item(i+1))
	}
	return items
}

func (n *Node) item(index int) MediaItem {
	if n.IsVideo {
		return MediaItem{Index: index, URL: n.VideoURL, IsVideo: true}
	}
	return MediaItem{Index: index, URL: n.DisplayURL}
}
