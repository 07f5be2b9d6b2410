package ratelimit

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youthconnect/gatekeeper/clog"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, Rule{Capacity: 20, RefillTokens: 20, RefillPeriod: time.Minute}, rules[ClassAuth])
	assert.Equal(t, Rule{Capacity: 50, RefillTokens: 50, RefillPeriod: time.Minute}, rules[ClassUSSD])
	assert.Equal(t, Rule{Capacity: 100, RefillTokens: 100, RefillPeriod: time.Minute}, rules[ClassGeneral])
}

func TestRule_FullRefill(t *testing.T) {
	cases := map[string]struct {
		rule Rule
		want time.Duration
	}{
		"补充数等于容量":  {Rule{Capacity: 20, RefillTokens: 20, RefillPeriod: time.Minute}, time.Minute},
		"补充数小于容量":  {Rule{Capacity: 10, RefillTokens: 1, RefillPeriod: 100 * time.Millisecond}, time.Second},
		"不能整除时向上取整": {Rule{Capacity: 10, RefillTokens: 3, RefillPeriod: time.Second}, 4 * time.Second},
		"补充数大于容量":  {Rule{Capacity: 5, RefillTokens: 50, RefillPeriod: time.Second}, time.Second},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rule.FullRefill())
		})
	}

	p, err := NewPolicy(true, map[EndpointClass]Rule{
		ClassAuth: {Capacity: 10, RefillTokens: 1, RefillPeriod: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	// GENERAL/USSD 默认 60s 补满，仍是最长的
	assert.Equal(t, time.Minute, p.LongestFullRefill())
}

func TestPolicy(t *testing.T) {
	t.Run("缺失类别使用默认规则", func(t *testing.T) {
		p, err := NewPolicy(true, map[EndpointClass]Rule{ClassAuth: PerMinute(5)})
		require.NoError(t, err)

		auth, err := p.Rule(ClassAuth)
		require.NoError(t, err)
		assert.Equal(t, int64(5), auth.Capacity)

		general, err := p.Rule(ClassGeneral)
		require.NoError(t, err)
		assert.Equal(t, int64(100), general.Capacity)
		assert.Equal(t, time.Minute, p.LongestFullRefill())
	})

	t.Run("全局开关", func(t *testing.T) {
		p, err := NewPolicy(false, nil)
		require.NoError(t, err)
		assert.False(t, p.Enabled())
		p.SetEnabled(true)
		assert.True(t, p.Enabled())
	})

	t.Run("非法规则", func(t *testing.T) {
		_, err := NewPolicy(true, map[EndpointClass]Rule{ClassAuth: {Capacity: 0, RefillTokens: 1, RefillPeriod: time.Second}})
		assert.ErrorIs(t, err, ErrInvalidRule)

		_, err = NewPolicy(true, map[EndpointClass]Rule{ClassAuth: {Capacity: 1, RefillTokens: 1}})
		assert.ErrorIs(t, err, ErrInvalidRule)

		_, err = NewPolicy(true, map[EndpointClass]Rule{"ADMIN": PerMinute(1)})
		assert.ErrorIs(t, err, ErrUnknownClass)
	})
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass(" ussd ")
	require.NoError(t, err)
	assert.Equal(t, ClassUSSD, c)

	_, err = ParseClass("admin")
	assert.ErrorIs(t, err, ErrUnknownClass)

	assert.Len(t, Classes(), 3)
	assert.Equal(t, "AUTH:10.0.0.1", Key{Client: "10.0.0.1", Class: ClassAuth}.String())
}

func TestConfigPolicy(t *testing.T) {
	var buf bytes.Buffer
	logger, err := clog.New(&clog.Config{Level: "warn", Format: "json"}, clog.WithWriter(&buf))
	require.NoError(t, err)

	cfg := &Config{
		Enabled: true,
		Rules: map[string]RuleConfig{
			"AUTH":    {RequestsPerMinute: 10, Burst: 30},
			"general": {Capacity: 200, RefillPeriod: 30 * time.Second},
		},
	}
	p, err := cfg.Policy(logger)
	require.NoError(t, err)

	auth, _ := p.Rule(ClassAuth)
	assert.Equal(t, int64(10), auth.Capacity, "burst_capacity 不影响容量")
	assert.Equal(t, int64(30), auth.Burst)
	assert.Contains(t, buf.String(), "burst_capacity is not applied")

	general, _ := p.Rule(ClassGeneral)
	assert.Equal(t, Rule{Capacity: 200, RefillTokens: 100, RefillPeriod: 30 * time.Second}, general)

	_, err = (&Config{Rules: map[string]RuleConfig{"admin": {}}}).Policy(nil)
	assert.ErrorIs(t, err, ErrUnknownClass)
}
