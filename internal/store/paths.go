package store

// Path helpers for the session tree. Logical layout:
//
//	sessions/{code}/hostId
//	sessions/{code}/hostName
//	sessions/{code}/users/{userId}
//	sessions/{code}/commands/{pushKey}
//	sessions/{code}/photos/{pushKey}
//	sessions/{code}/collaborativeStrip
//	sessions/{code}/sessionEnded

func SessionPath(code string) string {
	return "sessions/" + code
}

func HostIDPath(code string) string {
	return SessionPath(code) + "/hostId"
}

func HostNamePath(code string) string {
	return SessionPath(code) + "/hostName"
}

func UsersPath(code string) string {
	return SessionPath(code) + "/users"
}

func UserPath(code, userID string) string {
	return UsersPath(code) + "/" + userID
}

func LastActivePath(code, userID string) string {
	return UserPath(code, userID) + "/lastActive"
}

func CommandsPath(code string) string {
	return SessionPath(code) + "/commands"
}

func PhotosPath(code string) string {
	return SessionPath(code) + "/photos"
}

func StripPath(code string) string {
	return SessionPath(code) + "/collaborativeStrip"
}

func SessionEndedPath(code string) string {
	return SessionPath(code) + "/sessionEnded"
}
