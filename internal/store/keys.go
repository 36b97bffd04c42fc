package store

// Key prefixes. Everything is scoped by user ID so multiple accounts can
// share one database file on the same device.
const (
	userPrefix        = "user:"
	userEmailPrefix   = "user:idx:email:"
	currentUserKey    = "currentuser"
	historyPrefix     = "hist:"
	bookmarkPrefix    = "mark:"
	progressPrefix    = "progress:"
	progressIdxPrefix = "progressidx:"
	versionPrefix     = "version:"
	autoSyncPrefix    = "autosync:"
	snapshotPrefix    = "snapshot:"
	replicaPrefix     = "cloud:"
)

func userKey(id string) []byte { return []byte(userPrefix + id) }

func userEmailKey(email string) []byte { return []byte(userEmailPrefix + email) }

func historyKey(userID string) []byte { return []byte(historyPrefix + userID) }

func bookmarkKey(userID string) []byte { return []byte(bookmarkPrefix + userID) }

func progressIdxKey(userID string) []byte { return []byte(progressIdxPrefix + userID) }

func versionKey(userID string) []byte { return []byte(versionPrefix + userID) }

func autoSyncKey(userID string) []byte { return []byte(autoSyncPrefix + userID) }

func snapshotKey(userID string) []byte { return []byte(snapshotPrefix + userID) }

func replicaKey(userID string) []byte { return []byte(replicaPrefix + userID) }

func progressKey(userID, bookID string) []byte {
	return []byte(progressPrefix + userID + ":" + bookID)
}
