package utils

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNilParameter = errors.New("nil parameter")
	ErrShortRead    = errors.New("short read")
	ErrInvalidData  = errors.New("invalid data")
)

// NumErr 用于 协议里的 状态码 之类的错误
type NumErr struct {
	N      int
	Prefix string
}

func (ne NumErr) Error() string {
	return ne.Prefix + strconv.Itoa(ne.N)
}

// ErrInErr 很适合一个err包含另一个err，并且提供附带数据的情况.
// 返回结构体而不是指针, 这样可以避免内存逃逸到堆.
//
// Data 只用于日志; 不要放入 读到的原始数据, 里面可能有凭证.
type ErrInErr struct {
	ErrDesc   string
	ErrDetail error
	Data      any
}

func (e ErrInErr) Error() string {
	return e.String()
}

func (e ErrInErr) Unwrap() error {
	return e.ErrDetail
}

// Is 只比较 ErrDetail 本身, 更深的层次 由 errors.Is 通过 Unwrap 继续比较.
func (e ErrInErr) Is(err error) bool {
	return e.ErrDetail == err
}

func (e ErrInErr) String() string {
	switch {
	case e.Data != nil && e.ErrDetail != nil:
		return fmt.Sprintf("%s : %s, Data: %v", e.ErrDesc, e.ErrDetail.Error(), e.Data)
	case e.Data != nil:
		return fmt.Sprintf("%s , Data: %v", e.ErrDesc, e.Data)
	case e.ErrDetail != nil:
		return fmt.Sprintf("%s : %s", e.ErrDesc, e.ErrDetail.Error())
	}
	return e.ErrDesc
}
