package instagram

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the endpoint for user profiles
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// GraphQLEndpoint serves the timeline and single post queries
	GraphQLEndpoint = "/graphql/query/"

	// TimelineQueryHash is the query hash for a user's timeline media
	TimelineQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// PostQueryHash is the query hash for a single post by shortcode
	PostQueryHash = "2b0673e0dc4580674a88d426fe00ea90"

	// WebAppID is sent as X-IG-App-ID; the profile endpoint rejects requests without it
	WebAppID = "936619743392459"

	// DefaultMediaLimit is the default number of media items to fetch per request
	DefaultMediaLimit = 12

	// MaxMediaLimit is the maximum number of media items that can be fetched per request
	MaxMediaLimit = 50
)

// ProfilePath returns the path and query for a user's profile
func ProfilePath(username string) string {
	params := url.Values{}
	params.Set("username", username)
	return ProfileEndpoint + "?" + params.Encode()
}

// TimelinePath returns the path and query for one page of a user's posts
func TimelinePath(userID, after string, limit int) string {
	if limit <= 0 {
		limit = DefaultMediaLimit
	} else if limit > MaxMediaLimit {
		limit = MaxMediaLimit
	}

	variables := map[string]interface{}{
		"id":    userID,
		"first": limit,
	}
	if after != "" {
		variables["after"] = after
	}
	return graphQLPath(TimelineQueryHash, variables)
}

// PostPath returns the path and query for a single post
func PostPath(shortcode string) string {
	return graphQLPath(PostQueryHash, map[string]interface{}{"shortcode": shortcode})
}

func graphQLPath(hash string, variables map[string]interface{}) string {
	vars, _ := json.Marshal(variables)

	params := url.Values{}
	params.Set("query_hash", hash)
	params.Set("variables", string(vars))
	return GraphQLEndpoint + "?" + params.Encode()
}

// GetPostURL constructs the public URL for a post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername normalises user input: "@name", "name/" and profile URLs
// such as "https://www.instagram.com/name/" all become "name".
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)

	if u, err := url.Parse(username); err == nil && u.Host != "" {
		username = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(username, '/'); i >= 0 {
			username = username[:i]
		}
	}

	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
