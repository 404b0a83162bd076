package service

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/mailer"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/upload"
)

func newNewsletterService(t *testing.T, m mailer.Mailer) (*NewsletterService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	if m == nil {
		m = mailer.NewLogMailer("news@example.com", zap.NewNop())
	}
	svc := NewNewsletterService(env.store, env.uploads, m, config.MailConfig{
		Workers:        2,
		UnsubscribeURL: "https://example.com/unsubscribe",
	}, nil, zap.NewNop())
	svc.now = env.clock.Now
	return svc, env
}

func TestNewsletterService_Subscribe(t *testing.T) {
	svc, _ := newNewsletterService(t, nil)
	ctx := context.Background()

	sub, reactivated, err := svc.Subscribe(ctx, SubscribeInput{Email: " Reader@Example.com ", Name: "Reader"})
	require.NoError(t, err)
	assert.False(t, reactivated)
	assert.Equal(t, "reader@example.com", sub.Email)
	assert.Equal(t, "website", sub.Source)
	assert.False(t, sub.Unsubscribed)

	t.Run("重复订阅", func(t *testing.T) {
		_, _, err := svc.Subscribe(ctx, SubscribeInput{Email: "reader@example.com"})
		assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
	})

	t.Run("邮箱非法", func(t *testing.T) {
		_, _, err := svc.Subscribe(ctx, SubscribeInput{Email: "nope"})
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("退订后重新订阅清除退订时间", func(t *testing.T) {
		out, err := svc.Unsubscribe(ctx, "READER@example.com")
		require.NoError(t, err)
		assert.True(t, out.Unsubscribed)
		require.NotNil(t, out.UnsubscribedAt)
		firstAt := *out.UnsubscribedAt

		again, err := svc.Unsubscribe(ctx, "reader@example.com")
		require.NoError(t, err)
		assert.True(t, again.UnsubscribedAt.Equal(firstAt))

		back, reactivated, err := svc.Subscribe(ctx, SubscribeInput{Email: "reader@example.com"})
		require.NoError(t, err)
		assert.True(t, reactivated)
		assert.False(t, back.Unsubscribed)
		assert.Nil(t, back.UnsubscribedAt)
		assert.Equal(t, sub.ID, back.ID)
		assert.Equal(t, "Reader", back.Name)
	})

	t.Run("后台恢复订阅", func(t *testing.T) {
		_, err := svc.Unsubscribe(ctx, "reader@example.com")
		require.NoError(t, err)
		back, err := svc.Resubscribe(ctx, sub.ID.Hex())
		require.NoError(t, err)
		assert.False(t, back.Unsubscribed)
		assert.Nil(t, back.UnsubscribedAt)
	})

	t.Run("退订未知邮箱", func(t *testing.T) {
		_, err := svc.Unsubscribe(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestNewsletterService_Uploads(t *testing.T) {
	svc, env := newNewsletterService(t, nil)
	ctx := context.Background()
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	meta := UploadInput{Name: ptr("February"), Category: ptr("monthly"), Date: &date}

	t.Run("缺少文件", func(t *testing.T) {
		_, err := svc.CreateUpload(ctx, meta)
		assert.ErrorIs(t, err, domain.ErrMissingFile)
	})

	t.Run("非 PDF 不写盘", func(t *testing.T) {
		in := meta
		in.File = pngFile("cover.png")
		_, err := svc.CreateUpload(ctx, in)
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)
		assert.Equal(t, 0, env.fileCount(t, upload.PurposeNewsletters))
	})

	t.Run("元数据非法不写盘", func(t *testing.T) {
		_, err := svc.CreateUpload(ctx, UploadInput{Name: ptr("x"), Category: ptr("daily"), Date: &date, File: pdfFile("a.pdf")})
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, 0, env.fileCount(t, upload.PurposeNewsletters))
	})

	in := meta
	in.File = pdfFile("Feb 2024.pdf")
	created, err := svc.CreateUpload(ctx, in)
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.Equal(t, "application/pdf", created.MimeType)
	assert.Equal(t, "Feb 2024.pdf", created.OriginalName)
	assert.True(t, env.uploads.Exists(created.FilePath))

	t.Run("下载后累加次数", func(t *testing.T) {
		u, path, err := svc.Download(ctx, created.ID.Hex())
		require.NoError(t, err)
		_, statErr := os.Stat(path)
		require.NoError(t, statErr)
		require.NoError(t, svc.RecordDownload(ctx, u))

		got, err := svc.GetUpload(ctx, created.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.DownloadCount)
	})

	t.Run("停用后前台不可见", func(t *testing.T) {
		toggled, err := svc.ToggleUploadActive(ctx, created.ID.Hex())
		require.NoError(t, err)
		assert.False(t, toggled.Active)

		page, err := svc.ListPublicUploads(ctx, url.Values{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
		_, _, err = svc.Download(ctx, created.ID.Hex())
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = svc.ToggleUploadActive(ctx, created.ID.Hex())
		require.NoError(t, err)
	})

	t.Run("替换 PDF", func(t *testing.T) {
		updated, err := svc.UpdateUpload(ctx, created.ID.Hex(), UploadInput{Description: ptr("revised"), File: pdfFile("v2.pdf")})
		require.NoError(t, err)
		assert.Equal(t, "revised", updated.Description)
		assert.Equal(t, "v2.pdf", updated.OriginalName)
		assert.False(t, env.uploads.Exists(created.FilePath))
		assert.Equal(t, 1, env.fileCount(t, upload.PurposeNewsletters))
		created = updated
	})

	t.Run("文件丢失时下载失败且不计数", func(t *testing.T) {
		full, err := env.uploads.Path(created.FilePath)
		require.NoError(t, err)
		require.NoError(t, os.Remove(full))

		_, _, err = svc.Download(ctx, created.ID.Hex())
		assert.ErrorIs(t, err, domain.ErrFileNotFound)
		got, err := svc.GetUpload(ctx, created.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.DownloadCount)
	})

	t.Run("分类与删除", func(t *testing.T) {
		categories, err := svc.UploadCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"monthly"}, categories)

		other := meta
		other.File = pdfFile("b.pdf")
		second, err := svc.CreateUpload(ctx, other)
		require.NoError(t, err)
		require.NoError(t, svc.DeleteUpload(ctx, second.ID.Hex()))
		assert.False(t, env.uploads.Exists(second.FilePath))
		_, err = svc.GetUpload(ctx, second.ID.Hex())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func seedSubscribers(t *testing.T, svc *NewsletterService, emails ...string) []*domain.NewsletterSubscriber {
	t.Helper()
	out := make([]*domain.NewsletterSubscriber, 0, len(emails))
	for _, email := range emails {
		sub, _, err := svc.Subscribe(context.Background(), SubscribeInput{Email: email})
		require.NoError(t, err)
		out = append(out, sub)
	}
	return out
}

func TestNewsletterService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("只投递有效订阅者", func(t *testing.T) {
		m := &MockMailer{}
		svc, _ := newNewsletterService(t, m)
		seedSubscribers(t, svc, "a@example.com", "b@example.com", "c@example.com")
		_, err := svc.Unsubscribe(ctx, "c@example.com")
		require.NoError(t, err)

		m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
			return msg.Subject == "Hello" && msg.UnsubscribeURL == "https://example.com/unsubscribe?email="+url.QueryEscape(msg.To)
		})).Return(nil)

		campaign, err := svc.Send(ctx, SendInput{Subject: "Hello", Content: "<p>hi</p>", SentTo: "all"})
		require.NoError(t, err)
		assert.Equal(t, domain.CampaignSent, campaign.Status)
		assert.Equal(t, 2, campaign.RecipientCount)
		assert.Equal(t, domain.DeliveryStats{Sent: 2}, campaign.DeliveryStats)
		require.NotNil(t, campaign.SentAt)
		m.AssertNumberOfCalls(t, "Send", 2)
		m.AssertNotCalled(t, "Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool { return msg.To == "c@example.com" }))
	})

	t.Run("部分失败仍为已发送", func(t *testing.T) {
		m := &MockMailer{}
		svc, _ := newNewsletterService(t, m)
		seedSubscribers(t, svc, "ok@example.com", "bad@example.com")

		m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool { return msg.To == "ok@example.com" })).Return(nil)
		m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool { return msg.To == "bad@example.com" })).Return(errors.New("mailbox full"))

		campaign, err := svc.Send(ctx, SendInput{Subject: "Hi", Content: "x"})
		require.NoError(t, err)
		assert.Equal(t, domain.AudienceAll, campaign.SentTo)
		assert.Equal(t, domain.CampaignSent, campaign.Status)
		assert.Equal(t, domain.DeliveryStats{Sent: 1, Failed: 1}, campaign.DeliveryStats)
		assert.Equal(t, "mailbox full", campaign.LastError)
	})

	t.Run("全部失败", func(t *testing.T) {
		m := &MockMailer{}
		svc, _ := newNewsletterService(t, m)
		seedSubscribers(t, svc, "x@example.com")
		m.On("Send", mock.Anything, mock.Anything).Return(errors.New("relay down"))

		campaign, err := svc.Send(ctx, SendInput{Subject: "Hi", Content: "x", SentTo: "all"})
		require.NoError(t, err)
		assert.Equal(t, domain.CampaignFailed, campaign.Status)
		assert.Equal(t, 1, campaign.DeliveryStats.Failed)
	})

	t.Run("指定收件人排除已退订", func(t *testing.T) {
		m := &MockMailer{}
		svc, _ := newNewsletterService(t, m)
		subs := seedSubscribers(t, svc, "p@example.com", "q@example.com", "r@example.com")
		_, err := svc.Unsubscribe(ctx, "q@example.com")
		require.NoError(t, err)
		m.On("Send", mock.Anything, mock.Anything).Return(nil)

		campaign, err := svc.Send(ctx, SendInput{
			Subject:    "Picked",
			Content:    "x",
			SentTo:     "selected",
			Recipients: []string{subs[0].ID.Hex(), subs[1].ID.Hex()},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, campaign.RecipientCount)
		m.AssertCalled(t, "Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool { return msg.To == "p@example.com" }))
		m.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("无收件人不创建记录", func(t *testing.T) {
		m := &MockMailer{}
		svc, env := newNewsletterService(t, m)
		_, err := svc.Send(ctx, SendInput{Subject: "Empty", Content: "x", SentTo: "unsubscribed"})
		assert.ErrorIs(t, err, domain.ErrNoRecipients)

		n, err := env.store.Campaigns().Count(ctx, query.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("输入校验", func(t *testing.T) {
		svc, _ := newNewsletterService(t, &MockMailer{})
		_, err := svc.Send(ctx, SendInput{SentTo: "everyone"})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 3)

		_, err = svc.Send(ctx, SendInput{Subject: "s", Content: "c", SentTo: "selected", Recipients: []string{"bad"}})
		assert.ErrorAs(t, err, &verr)
	})
}

func TestNewsletterService_Stats(t *testing.T) {
	svc, _ := newNewsletterService(t, nil)
	ctx := context.Background()
	seedSubscribers(t, svc, "a@example.com", "b@example.com")
	_, err := svc.Unsubscribe(ctx, "b@example.com")
	require.NoError(t, err)
	_, err = svc.Send(ctx, SendInput{Subject: "s", Content: "c"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSubscribers)
	assert.Equal(t, int64(1), stats.ActiveSubscribers)
	assert.Equal(t, int64(1), stats.UnsubscribedSubscribers)
	assert.Equal(t, int64(1), stats.Campaigns)
	assert.Equal(t, int64(0), stats.Uploads)
}
