package strategy

import (
	"sort"
	"strings"

	"tradectl/internal/errs"
	"tradectl/internal/param"
)

type Constructor func(params param.Values) (Strategy, error)

// 策略注册表，启动时通过名称解析一次；未知名称直接返回配置错误
var registry = map[string]Constructor{
	"ifr":         func(p param.Values) (Strategy, error) { return NewIFR(p) },
	IFRName:       func(p param.Values) (Strategy, error) { return NewIFR(p) },
	"rsi":         func(p param.Values) (Strategy, error) { return NewIFR(p) },
	"ifrstrategy": func(p param.Values) (Strategy, error) { return NewIFR(p) },
}

func New(name string, params param.Values) (Strategy, error) {
	ctor, ok := lookup(name)
	if !ok {
		return nil, errs.Configurationf("strategy", "Strategy not found: %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	s, err := ctor(params)
	if err != nil {
		return nil, errs.Configuration("strategy "+name, err)
	}
	return s, nil
}

// Known 名称是否已注册
func Known(name string) bool {
	_, ok := lookup(name)
	return ok
}

func lookup(name string) (Constructor, bool) {
	if ctor, ok := registry[name]; ok {
		return ctor, true
	}
	ctor, ok := registry[strings.ToLower(name)]
	return ctor, ok
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
