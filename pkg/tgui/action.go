package tgui

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Action is an inline-button callback bound to one topic.
//
// Wire format: "ns:action:subject:chatID:threadID:sig" where sig is a
// truncated keyed hash over the preceding fields. The signature ties the
// button to the chat/thread it was issued for, so stale or copied
// callback_data from another topic is rejected on receipt.
type Action struct {
	Namespace string
	Action    string
	Subject   string
	ChatID    int64
	ThreadID  int
}

const actionSigLen = 8 // hex chars

var (
	ErrActionMalformed = errors.New("tgui: malformed action data")
	ErrActionSignature = errors.New("tgui: action signature mismatch")
	ErrActionContext   = errors.New("tgui: action context mismatch")
)

func actionBody(a Action) string {
	return strings.Join([]string{
		a.Namespace,
		a.Action,
		a.Subject,
		strconv.FormatInt(a.ChatID, 10),
		strconv.Itoa(a.ThreadID),
	}, ":")
}

func actionSig(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))[:actionSigLen]
}

// SignAction encodes a into callback_data signed with secret.
func SignAction(a Action, secret string) (string, error) {
	if a.Namespace == "" || a.Action == "" {
		return "", ErrActionMalformed
	}
	if strings.ContainsRune(a.Namespace, ':') || strings.ContainsRune(a.Action, ':') || strings.ContainsRune(a.Subject, ':') {
		return "", fmt.Errorf("%w: field contains separator", ErrActionMalformed)
	}
	body := actionBody(a)
	data := body + ":" + actionSig(body, secret)
	if len(data) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return data, nil
}

// VerifyAction decodes data, checks its signature against secret, and checks
// that the action was issued for the caller's current chat/thread. A copied
// callback from a different topic fails with ErrActionContext.
func VerifyAction(data, secret string, chatID int64, threadID int) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 6 {
		return Action{}, ErrActionMalformed
	}
	cid, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Action{}, ErrActionMalformed
	}
	tid, err := strconv.Atoi(parts[4])
	if err != nil {
		return Action{}, ErrActionMalformed
	}
	a := Action{Namespace: parts[0], Action: parts[1], Subject: parts[2], ChatID: cid, ThreadID: tid}
	want := actionSig(actionBody(a), secret)
	if !hmac.Equal([]byte(want), []byte(parts[5])) {
		return Action{}, ErrActionSignature
	}
	if cid != chatID || tid != threadID {
		return Action{}, ErrActionContext
	}
	return a, nil
}
