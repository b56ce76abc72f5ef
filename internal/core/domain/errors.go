package domain

import "errors"

var (
	ErrLinkNotFound       = errors.New("peer link not found")
	ErrLinkClosed         = errors.New("peer link closed")
	ErrRoleCannotPublish  = errors.New("role may not send video")
	ErrCameraLimitReached = errors.New("camera limit reached")
	ErrMediaNotActive     = errors.New("local media not active")
	ErrMediaAlreadyActive = errors.New("local media already active")
	ErrChannelClosed      = errors.New("signaling channel closed")
	ErrNotSubscribed      = errors.New("not subscribed to room channel")
)
