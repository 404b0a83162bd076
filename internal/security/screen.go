// Package security 在上传文件落盘前做内容筛查。
package security

import (
	"bytes"
	"path/filepath"
	"strings"
)

// SniffLen 筛查时读取的文件头长度
const SniffLen = 512

// dangerousExtensions 无论声明的类型如何都拒绝的扩展名
var dangerousExtensions = map[string]bool{
	".exe":  true,
	".bat":  true,
	".cmd":  true,
	".scr":  true,
	".pif":  true,
	".com":  true,
	".vbs":  true,
	".js":   true,
	".jar":  true,
	".php":  true,
	".asp":  true,
	".jsp":  true,
	".html": true,
	".htm":  true,
}

// executableSignatures 可执行文件魔数
var executableSignatures = [][]byte{
	{0x4D, 0x5A},             // PE executable
	{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
	{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
}

// scriptMarkers 出现在可被浏览器渲染的文件中即拒绝
var scriptMarkers = []string{"<script", "javascript:", "onload=", "onerror="}

// Screen 检查文件名与文件头，返回拒绝原因；可接受时返回空字符串
//
// 上传目录以静态文件对外提供，SVG 等可渲染类型中的脚本会在站点域下执行。
func Screen(filename, mediaType string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if dangerousExtensions[ext] {
		return "dangerous file extension: " + ext
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(head, sig) {
			return "executable file detected"
		}
	}

	if renderable(mediaType, ext) {
		lower := strings.ToLower(string(head))
		for _, marker := range scriptMarkers {
			if strings.Contains(lower, marker) {
				return "script content detected"
			}
		}
	}
	return ""
}

func renderable(mediaType, ext string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "svg") ||
		strings.Contains(mediaType, "xml") ||
		ext == ".svg"
}
