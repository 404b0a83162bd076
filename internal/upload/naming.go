package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxOriginalNameLength = 200

// generateFilename 生成 "{prefix}-{毫秒时间戳}-{随机串}{扩展名}"
//
// 随机部分取自 UUIDv4，同一毫秒内的并发上传也不会重名。
func generateFilename(prefix, original string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s%s", prefix, now.UnixMilli(), random, extension(original))
}

// extension 取原始文件扩展名，只保留小写字母与数字
func extension(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// SanitizeFilename 清理客户端文件名，用于记录与下载时的 Content-Disposition
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	filename = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, filename)

	if len(filename) > maxOriginalNameLength {
		ext := filepath.Ext(filename)
		if len(ext) >= maxOriginalNameLength {
			ext = ""
		}
		// 按字符边界截断，避免产生非法 UTF-8
		cut := maxOriginalNameLength - len(ext)
		for cut > 0 && !utf8.RuneStart(filename[cut]) {
			cut--
		}
		filename = filename[:cut] + ext
	}

	filename = strings.Trim(filename, " .")
	if filename == "" || filename == "/" {
		filename = "unnamed"
	}
	return filename
}
