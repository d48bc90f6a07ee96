package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// bindingMessage 把请求绑定错误转为面向用户的提示
// 字段校验失败时指出第一个出错字段，其余情况（JSON 语法错误等）返回通用提示
func bindingMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "参数校验失败"
	}

	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s 为必填项", field)
	case "max":
		return fmt.Sprintf("%s 长度不能超过 %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s 只能为 %s 之一", field, fe.Param())
	default:
		return fmt.Sprintf("%s 校验失败", field)
	}
}
