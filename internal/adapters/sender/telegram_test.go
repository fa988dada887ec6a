package sender

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloudimg/internal/core/port"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func testReport(failures int) port.RunReport {
	report := port.RunReport{
		RunID:    "b1946ac9",
		Started:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration: 3200 * time.Millisecond,
		Total:    5 + failures,
		Uploaded: 2,
		Skipped:  3,
	}
	for i := 0; i < failures; i++ {
		report.Failures = append(report.Failures, port.AssetFailure{
			Identifier: "sha256:" + strings.Repeat("a", 64),
			Err:        errors.New("upload failed: 503 service unavailable"),
		})
	}
	return report
}

func TestTelegram_Report(t *testing.T) {
	tests := []struct {
		name      string
		report    port.RunReport
		wantCalls int
		setupMock func(mb *MockBot)
		wantErr   bool
	}{
		{
			name:      "single message",
			report:    testReport(0),
			wantCalls: 1,
			setupMock: func(mb *MockBot) {
				mb.On("SendMessage", mock.Anything, mock.MatchedBy(func(params *bot.SendMessageParams) bool {
					return params.ChatID == int64(1001) && strings.Contains(params.Text, "2 uploaded, 3 skipped")
				})).
					Return(&models.Message{ID: 123}, nil).
					Once()
			},
		},
		{
			name:      "report chunked",
			report:    testReport(60),
			wantCalls: 2,
			setupMock: func(mb *MockBot) {
				mb.On("SendMessage", mock.Anything, mock.MatchedBy(func(params *bot.SendMessageParams) bool {
					return len([]rune(params.Text)) <= TelegramMessageLimit
				})).
					Return(&models.Message{ID: 456}, nil).
					Twice()
			},
		},
		{
			name:      "send fails",
			report:    testReport(1),
			wantCalls: 1,
			setupMock: func(mb *MockBot) {
				mb.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("fail")).Once()
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mb := new(MockBot)
			sender := NewTelegram(mb, 1001)

			tc.setupMock(mb)
			err := sender.Report(t.Context(), tc.report)

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			mb.AssertNumberOfCalls(t, "SendMessage", tc.wantCalls)
			mb.AssertExpectations(t)
		})
	}
}

func TestFormatReport(t *testing.T) {
	report := testReport(1)
	report.Cancelled = true

	want := "cloudimg run b1946ac9 (cancelled)\n" +
		"6 assets in 3.2s: 2 uploaded, 3 skipped, 1 failed\n" +
		"- sha256:" + strings.Repeat("a", 64) + ": upload failed: 503 service unavailable"

	assert.Equal(t, want, FormatReport(report))
}

func TestLog_Report(t *testing.T) {
	assert.NoError(t, Log{}.Report(context.Background(), testReport(2)))
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"abc"}, chunkText("abc", 5))
	assert.Equal(t, []string{"ab", "cd", "e"}, chunkText("abcde", 2))
	assert.Equal(t, []string{"äö", "ü"}, chunkText("äöü", 2))
}
