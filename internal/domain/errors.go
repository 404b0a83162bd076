package domain

import "errors"

// 业务错误定义，由传输层统一映射为 HTTP 状态码
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrDuplicate         = errors.New("resource already exists")
	ErrStoreUnavailable  = errors.New("store unavailable")

	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrMissingFile     = errors.New("file is required")
	ErrFileNotFound    = errors.New("stored file not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountDisabled    = errors.New("account is disabled")

	ErrAlreadySubscribed = errors.New("email is already subscribed")
	ErrNoRecipients      = errors.New("campaign has no recipients")
)
