package featureflag

type Flag string

const (
	// Scenes only rebuild their octree on explicit rebuild requests.
	FlagDisableAutoRebuild Flag = "DISABLE_AUTO_REBUILD"

	// The debug-draw websocket stream is not served.
	FlagDisableDebugDraw Flag = "DISABLE_DEBUG_DRAW"

	// Rebuilds do not record leaf membership into entities.
	FlagDisableMembershipNotify Flag = "DISABLE_MEMBERSHIP_NOTIFY"
)
