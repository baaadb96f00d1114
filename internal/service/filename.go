package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	fallbackFilename = "untitled"
	maxBaseNameRunes = 64
)

var (
	invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRuns       = regexp.MustCompile(`\s+`)
	underscoreRuns       = regexp.MustCompile(`_{2,}`)
)

// sanitizeFilename 将文件名中的非法字符替换为下划线并折叠空白。
// 结果永不为空：全部被清理掉时回退为固定占位名。该函数是幂等的。
func sanitizeFilename(name string) string {
	s := invalidFilenameChars.ReplaceAllString(name, "_")
	s = whitespaceRuns.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return fallbackFilename
	}
	return s
}

// buildStorageKey 生成对象存储路径：users/{ownerId}/{uuid}-{sanitizedBase}{ext}。
// 随机前缀保证同名文件互不覆盖，key 删除后也不复用。
func buildStorageKey(ownerID, originalName string) string {
	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(originalName, ext)

	clean := sanitizeFilename(base)
	if runes := []rune(clean); len(runes) > maxBaseNameRunes {
		clean = string(runes[:maxBaseNameRunes])
	}

	return fmt.Sprintf("users/%s/%s-%s%s", ownerID, uuid.NewString(), clean, ext)
}

// fileExtension 返回小写、不含点号的扩展名。
func fileExtension(originalName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), ".")
}
