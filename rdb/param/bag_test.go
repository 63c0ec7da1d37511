package param

import (
	"database/sql"
	"testing"
	"time"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type userFilter struct {
	Name    string `rdb:"user_name"`
	Age     int
	Ignored string `rdb:"-"`
	secret  string
}

func TestBag(t *testing.T) {
	Convey("测试 Bag", t, func() {
		Convey("保持插入顺序，名字大小写不敏感", func() {
			b := NewBag().Set("B", 2).Set("a", 1)
			So(b.Names(), ShouldResemble, []string{"B", "a"})
			p, ok := b.Get("b")
			So(ok, ShouldBeTrue)
			So(p.Value, ShouldEqual, 2)
			So(p.Type.Kind().String(), ShouldEqual, "int")
		})

		Convey("同名覆盖保持原位置", func() {
			b := NewBag().Set("a", 1).Set("b", 2).Set("A", 3)
			So(b.Len(), ShouldEqual, 2)
			So(b.Params()[0].Value, ShouldEqual, 3)
			So(b.Params()[0].Name, ShouldEqual, "A")
		})

		Convey("nil 参数包", func() {
			var b *Bag
			So(b.Len(), ShouldEqual, 0)
			_, ok := b.Get("a")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestPairs(t *testing.T) {
	Convey("测试 Pairs 方法", t, func() {
		b, err := Pairs("z", 1, "a", "x")
		So(err, ShouldBeNil)
		So(b.Names(), ShouldResemble, []string{"z", "a"})

		_, err = Pairs("a")
		So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)

		_, err = Pairs(1, 2)
		So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)

		_, err = Pairs("a", []int{1})
		So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
	})
}

func TestFrom(t *testing.T) {
	Convey("测试 From 方法", t, func() {
		Convey("nil 为空参数包", func() {
			b, err := From(nil)
			So(err, ShouldBeNil)
			So(b.Len(), ShouldEqual, 0)
		})

		Convey("map 按键排序", func() {
			b, err := From(map[string]any{"c": 3, "a": 1, "b": nil})
			So(err, ShouldBeNil)
			So(b.Names(), ShouldResemble, []string{"a", "b", "c"})
		})

		Convey("带类型的 map", func() {
			b, err := From(map[string]int{"y": 2, "x": 1})
			So(err, ShouldBeNil)
			So(b.Names(), ShouldResemble, []string{"x", "y"})
		})

		Convey("map 值不是标量", func() {
			_, err := From(map[string]any{"a": map[string]int{"b": 1}})
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)

			_, err = From(map[string]any{"a": struct{}{}})
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})

		Convey("map 键不是字符串", func() {
			_, err := From(map[int]any{1: 1})
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})

		Convey("结构体按字段顺序并使用 rdb tag", func() {
			b, err := From(&userFilter{Name: "张三", Age: 20, secret: "x"})
			So(err, ShouldBeNil)
			So(b.Names(), ShouldResemble, []string{"user_name", "Age"})
		})

		Convey("Bag 原样返回", func() {
			orig := NewBag().Set("a", 1)
			b, err := From(orig)
			So(err, ShouldBeNil)
			So(b, ShouldEqual, orig)
		})

		Convey("不支持的形状", func() {
			_, err := From(42)
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
			_, err = From([]int{1, 2})
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
			_, err = From(time.Now())
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})
	})
}

func TestIsScalar(t *testing.T) {
	Convey("测试 IsScalar 方法", t, func() {
		type myString string
		var nilInt *int
		n := 3

		for _, v := range []any{
			nil, true, 1, int8(1), uint64(1), 1.5, "s", myString("s"),
			[]byte("b"), time.Now(), sql.NullString{}, &sql.NullInt64{}, nilInt, &n,
		} {
			So(IsScalar(v), ShouldBeTrue)
		}

		for _, v := range []any{
			[]int{1}, map[string]int{}, struct{}{}, make(chan int), func() {}, complex(1, 2),
		} {
			So(IsScalar(v), ShouldBeFalse)
		}

		So(IsBagShape(map[string]any{}), ShouldBeTrue)
		So(IsBagShape(&userFilter{}), ShouldBeTrue)
		So(IsBagShape(NewBag()), ShouldBeTrue)
		So(IsBagShape(time.Now()), ShouldBeFalse)
		So(IsBagShape(sql.NullString{}), ShouldBeFalse)
		So(IsBagShape(1), ShouldBeFalse)
	})
}
