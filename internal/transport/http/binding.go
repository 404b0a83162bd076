package httptransport

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/upload"
)

// dateLayouts 表单日期字段接受的格式
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// isMultipart 判断请求是否为 multipart 表单
func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindJSON 解析 JSON 请求体，请求体过大时返回 ErrFileTooLarge
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if tooLarge(err) {
			return domain.ErrFileTooLarge
		}
		return domain.NewValidationError("body", MsgInvalidRequest)
	}
	return nil
}

// bindOptionalJSON 与 bindJSON 相同，但允许空请求体（包括分块传输的空体），此时返回 false
func bindOptionalJSON(c *gin.Context, dst any) (bool, error) {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if tooLarge(err) {
			return false, domain.ErrFileTooLarge
		}
		return false, domain.NewValidationError("body", MsgInvalidRequest)
	}
	return true, nil
}

// parseMultipart 预先解析表单，以便区分请求体过大与格式错误
func parseMultipart(c *gin.Context) error {
	if _, err := c.MultipartForm(); err != nil {
		if tooLarge(err) {
			return domain.ErrFileTooLarge
		}
		return domain.NewValidationError("body", MsgInvalidMultipart)
	}
	return nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// formFile 读取上传文件，字段缺失时返回 nil
//
// 调用方在服务调用结束后执行返回的 close。
func formFile(c *gin.Context, field string) (*upload.Incoming, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, func() {}, nil
		}
		if tooLarge(err) {
			return nil, func() {}, domain.ErrFileTooLarge
		}
		return nil, func() {}, domain.NewValidationError(field, MsgInvalidMultipart)
	}
	return openIncoming(header)
}

func openIncoming(header *multipart.FileHeader) (*upload.Incoming, func(), error) {
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	in := &upload.Incoming{
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
		Body:      f,
	}
	return in, func() { _ = f.Close() }, nil
}

// form 从 multipart 表单读取可选字段，解析错误累积到 errs
type form struct {
	c    *gin.Context
	errs *domain.ValidationError
}

func newForm(c *gin.Context) *form {
	return &form{c: c, errs: &domain.ValidationError{}}
}

func (f *form) String(key string) *string {
	v, ok := f.c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

func (f *form) Bool(key string) *bool {
	raw, ok := f.c.GetPostForm(key)
	if !ok || raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		f.errs.Add(key, "must be true or false")
		return nil
	}
	return &b
}

func (f *form) Int(key string) *int {
	raw, ok := f.c.GetPostForm(key)
	if !ok || raw == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		f.errs.Add(key, "must be an integer")
		return nil
	}
	return &n
}

func (f *form) Time(key string) *time.Time {
	raw, ok := f.c.GetPostForm(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	f.errs.Add(key, "must be a valid date")
	return nil
}

// List 读取逗号分隔或重复提交的列表字段
func (f *form) List(key string) []string {
	values, ok := f.c.GetPostFormArray(key)
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (f *form) Err() error {
	return f.errs.Err()
}
