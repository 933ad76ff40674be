// Package conference issues room tokens for the embedded conferencing widget used by
// native-mode webinars.
package conference

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
)

// ErrNotConfigured is returned when no app id or server secret is set.
var ErrNotConfigured = errors.New("conference: app id and server secret required")

// roomPayload restricts a token04 token to one room.
type roomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// generateRoomToken signs a token04 token for userID in roomID. Only publishers may push streams.
func generateRoomToken(appID uint32, serverSecret, roomID, userID string, publish bool, ttlSec int64) (string, error) {
	if appID == 0 || serverSecret == "" {
		return "", ErrNotConfigured
	}
	if len(serverSecret) != 32 {
		return "", fmt.Errorf("conference: server secret must be 32 characters")
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if publish {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	payload, err := json.Marshal(roomPayload{RoomID: roomID, Privilege: privilege})
	if err != nil {
		return "", fmt.Errorf("conference: marshal payload: %w", err)
	}
	return token04.GenerateToken04(appID, userID, serverSecret, ttlSec, string(payload))
}
