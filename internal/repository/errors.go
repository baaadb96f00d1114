package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrDuplicate 表示唯一约束冲突（邮箱、storage_key 等）。
var ErrDuplicate = errors.New("repository: duplicate record")
