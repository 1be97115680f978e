package validation

import (
	"fmt"
	"regexp"

	"github.com/minhqd/among-arena/internal/entity"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateGameID checks a client-supplied game ID before it reaches any
// lookup or storage path.
func ValidateGameID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("game ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("game ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateAgentID checks an agent ID against the roster bounds. It does not
// guarantee the agent exists in a particular game.
func ValidateAgentID(id int) error {
	if id < 1 || id > entity.MaxAgents {
		return fmt.Errorf("agent ID must be between 1 and %d", entity.MaxAgents)
	}
	return nil
}

// ValidateProviderID checks a provider identifier from a request body.
func ValidateProviderID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("provider ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("provider ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}
