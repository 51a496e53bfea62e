package common

// AuthorizationHeaderName carries "key:value;key:value" credentials or a
// bearer upload token.
const AuthorizationHeaderName = "Authorization"

// SubjectKeyLength is the number of decimal digits in a subject key.
const SubjectKeyLength = 7

// RootFolderID identifies the storage root. Share links are never created
// for it.
const RootFolderID = "0"

// ShareLinkUnavailable is recorded instead of a share link when the target
// folder is the storage root.
const ShareLinkUnavailable = "unavailable"
