package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSender struct {
	sent    map[string]string
	sendErr error
}

func (m *mockSender) SendText(ctx context.Context, openID string, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.sent == nil {
		m.sent = make(map[string]string)
	}
	m.sent[openID] = text
	return nil
}

func TestNotifier_SkipsUsersWithoutOpenID(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender, zap.NewNop())

	err := n.Notify(context.Background(), workflow.NotifyInvoiceApproved, []*entity.User{
		{ID: "sub-1", LarkOpenID: "ou_sub"},
		{ID: "fin-1"},
	}, port.InvoiceContext{InvoiceID: 5})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent["ou_sub"], "Invoice #5 has been approved.")
}

func TestNotifier_JoinsSendErrors(t *testing.T) {
	boom := errors.New("rate limited")
	n := NewNotifier(&mockSender{sendErr: boom}, zap.NewNop())

	err := n.Notify(context.Background(), workflow.NotifyInvoicePaid, []*entity.User{
		{ID: "a", LarkOpenID: "ou_a"},
		{ID: "b", LarkOpenID: "ou_b"},
	}, port.InvoiceContext{InvoiceID: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "user a")
	assert.Contains(t, err.Error(), "user b")
}

func TestMessenger_SendText(t *testing.T) {
	var captured *larkim.CreateMessageReq
	m := &Messenger{
		create: func(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
			captured = req
			return &larkim.CreateMessageResp{}, nil
		},
		logger: zap.NewNop(),
	}

	require.NoError(t, m.SendText(context.Background(), "ou_1", `Reason: "no receipt"`))
	require.NotNil(t, captured)
	require.NotNil(t, captured.Body)
	assert.Equal(t, "ou_1", *captured.Body.ReceiveId)
	assert.Equal(t, larkim.MsgTypeText, *captured.Body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*captured.Body.Content), &content))
	assert.Equal(t, `Reason: "no receipt"`, content["text"])
}

func TestMessenger_Errors(t *testing.T) {
	m := &Messenger{
		create: func(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
			return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}, nil
		},
		logger: zap.NewNop(),
	}

	assert.Error(t, m.SendText(context.Background(), "", "hi"))
	assert.Error(t, m.SendText(context.Background(), "ou_1", ""))

	err := m.SendText(context.Background(), "ou_1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}
