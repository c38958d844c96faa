// Package netconfig defines lightweight types shared between host and clients
// for network serialization. It must stay free of transport and ECS
// dependencies so every binary (host, participant, master) can import it.
package netconfig

import "fmt"

// MaxPlayerCount is the session cap, host included.
const MaxPlayerCount = 4

// NoColor marks a player record that could not be given a free color.
const NoColor = -1

// RelayJoinCodeKey is the session data key carrying the relay join code.
const RelayJoinCodeKey = "RelayJoinCode"

// MatchStateID represents the current phase of a match.
type MatchStateID int

const (
	MatchStateWaiting   MatchStateID = iota // Waiting for every player to ready up
	MatchStateCountdown                     // Pre-match countdown (3, 2, 1)
	MatchStatePlaying                       // Active gameplay
	MatchStateGameOver                      // Match over, terminal
)

var matchStateNames = map[MatchStateID]string{
	MatchStateWaiting:   "WaitingToStart",
	MatchStateCountdown: "CountdownToStart",
	MatchStatePlaying:   "Playing",
	MatchStateGameOver:  "GameOver",
}

func (s MatchStateID) String() string {
	if name, ok := matchStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MatchStateID(%d)", int(s))
}

// SceneID identifies a scene the presentation layer can load.
type SceneID int

const (
	SceneMainMenu SceneID = iota
	SceneLobby
	SceneLoading
	SceneCharacterSelect // pre-game scene; the only one that admits new players
	SceneGame
)

var sceneNames = map[SceneID]string{
	SceneMainMenu:        "MainMenuScene",
	SceneLobby:           "LobbyScene",
	SceneLoading:         "LoadingScene",
	SceneCharacterSelect: "CharacterSelectScene",
	SceneGame:            "GameScene",
}

func (s SceneID) String() string {
	if name, ok := sceneNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SceneID(%d)", int(s))
}

// PlayerColors is the palette players pick from. Indices are what the roster
// replicates; presentation maps them to actual colors.
var PlayerColors = []string{
	"#2E86DE", // blue
	"#EE5253", // red
	"#10AC84", // green
	"#FECA57", // yellow
	"#A55EEA", // purple
	"#FF9F43", // orange
	"#48DBFB", // cyan
	"#C8D6E5", // grey
}

// ColorCount returns the palette size.
func ColorCount() int {
	return len(PlayerColors)
}

// Admission rejection reasons, shown verbatim to the rejected player.
const (
	RejectGameStarted = "Game has already started!"
	RejectGameFull    = "Game is full!"
	RejectVersion     = "Version mismatch"
)

// DefaultDisconnectReason is shown when a join fails without a specific reason.
const DefaultDisconnectReason = "Failed to connect"

// KickedReason is sent to a player removed by the host.
const KickedReason = "You were kicked by the host"

// PeerID identifies a participant's transport connection for the lifetime of
// a session.
type PeerID string

// HostPeer is the host's own participant. It never travels through a
// transport but is a roster member like everyone else.
const HostPeer PeerID = "host"

// FirstEntityNetworkID is the first network id handed out to spawned
// entities. Lower ids belong to objects placed in the kitchen layout.
const FirstEntityNetworkID = 1 << 16
