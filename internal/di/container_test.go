package di

import (
	"reflect"
	"testing"
)

type greeter struct{ name string }

func TestRegisterAndResolve(t *testing.T) {
	c := NewContainer()
	c.Register("greeter", &greeter{name: "podcast"})

	g, err := Resolve[*greeter](c, "greeter")
	if err != nil {
		t.Fatalf("Resolve 失败: %v", err)
	}
	if g.name != "podcast" {
		t.Errorf("name = %q", g.name)
	}

	if _, err := Resolve[*greeter](c, "missing"); err == nil {
		t.Error("未注册的服务应返回错误")
	}
	if _, err := Resolve[string](c, "greeter"); err == nil {
		t.Error("类型不符应返回错误")
	}
}

func TestGetNamesSorted(t *testing.T) {
	c := NewContainer()
	c.Register("store", 1)
	c.Register("analysis", 2)
	c.Register("progress", 3)

	if got := c.GetNames(); !reflect.DeepEqual(got, []string{"analysis", "progress", "store"}) {
		t.Errorf("GetNames = %v", got)
	}
	if !c.Has("store") || c.Has("nope") {
		t.Error("Has 结果不正确")
	}
}
