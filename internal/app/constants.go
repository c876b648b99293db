package app

import "github.com/thushan/olla-sidecard/internal/core/constants"

const (
	ContentTypeHeader = constants.ContentTypeHeader
	ContentTypeJSON   = constants.ContentTypeJSON
)
