package docstore

import "errors"

// ErrNotFound 文档不存在
var ErrNotFound = errors.New("docstore: document not found")
