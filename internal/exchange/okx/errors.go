package okx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"tradectl/internal/errs"
)

var (
	codePattern   = regexp.MustCompile(`"s?[cC]ode"\s*:\s*"?(\d{5})"?`)
	statusPattern = regexp.MustCompile(`(?i)status(?:\s*code)?\s*[:=]?\s*(5\d\d)\b`)
)

// 可重试的业务码：系统繁忙、服务不可用、限频
var transientCodes = map[int]bool{
	50001: true,
	50004: true,
	50011: true,
	50013: true,
}

// 下单相关接口，51xxx 才算拒单
var orderOps = map[string]bool{
	"place order":     true,
	"close position":  true,
	"protective stop": true,
}

// errorCode 从响应体或错误文本中提取 OKX 业务码
func errorCode(err error, body []byte) int {
	for _, s := range []string{string(body), err.Error()} {
		for _, m := range codePattern.FindAllStringSubmatch(s, -1) {
			code, _ := strconv.Atoi(m[1])
			if code != 0 {
				return code
			}
		}
	}
	return 0
}

func (c *Client) classify(op string, err error, body []byte) error {
	if err == nil {
		return nil
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Transient(op, err)
	}
	if statusPattern.MatchString(err.Error()) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return errs.Transient(op, err)
	}

	code := errorCode(err, body)
	switch {
	case transientCodes[code]:
		return errs.Transient(op, err)
	case code >= 50100 && code <= 50119:
		hint := c.cfg.CredentialHint
		if hint == "" {
			hint = "check the OKX API key, secret and passphrase"
		}
		return errs.Authentication(op, hint, err)
	case code >= 51000 && code < 52000 && orderOps[op]:
		return errs.OrderRejection(op, fmt.Errorf("code %d: %w", code, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
