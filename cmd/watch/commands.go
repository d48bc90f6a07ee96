package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"student-roster/internal/dto"
	"student-roster/internal/syncview"
)

var errQuit = errors.New("quit")

const usage = `命令:
  /关键字                           按姓名或编号过滤（单独的 / 清除过滤）
  att <id> <0|1> <0|1>              更新到场标记
  add name=.. code=.. [teacher=..]  新增记录
  edit <id> [name=..] [code=..] ... 修改记录（未给出的字段保持原值）
  cancel                            放弃编辑
  del <id>                          删除记录
  q                                 退出`

// runCommand 执行一行命令
func runCommand(ctx context.Context, view *syncview.View, line string) error {
	switch {
	case line == "":
		return nil
	case line == "q":
		return errQuit
	case strings.HasPrefix(line, "/"):
		view.SetFilter(strings.TrimPrefix(line, "/"))
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "att":
		if len(fields) != 4 {
			return fmt.Errorf("用法: att <id> <0|1> <0|1>")
		}
		id, err := parseID(fields[1])
		if err != nil {
			return err
		}
		return view.CommitAttendance(ctx, id, fields[2] == "1", fields[3] == "1")
	case "add":
		req := &dto.RecordRequest{}
		if err := applyAssignments(req, fields[1:]); err != nil {
			return err
		}
		_, err := view.Create(ctx, req)
		return err
	case "edit":
		if len(fields) < 2 {
			return fmt.Errorf("用法: edit <id> [name=..] [code=..] [teacher=..] [guardian1=..] [guardian2=..]")
		}
		id, err := parseID(fields[1])
		if err != nil {
			return err
		}
		if !view.Open(id) {
			return syncview.ErrNotFound
		}
		cur, ok := view.Selected()
		if !ok {
			return syncview.ErrNotFound
		}
		req := &dto.RecordRequest{
			Name:      cur.Name,
			Code:      cur.Code,
			Teacher:   cur.Teacher,
			Guardian1: cur.Guardian1,
			Guardian2: cur.Guardian2,
		}
		if err := applyAssignments(req, fields[2:]); err != nil {
			return err
		}
		return view.CommitEdit(ctx, req)
	case "cancel":
		view.CloseEditor()
		return nil
	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("用法: del <id>")
		}
		id, err := parseID(fields[1])
		if err != nil {
			return err
		}
		return view.Delete(ctx, id)
	case "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("未知命令 %q，输入 help 查看用法", fields[0])
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("无效的 id %q", s)
	}
	return id, nil
}

// applyAssignments 解析 key=value 列表写入 req
// 不含 = 的词接在前一个值之后，允许 name=Ana María 这样的带空格取值
func applyAssignments(req *dto.RecordRequest, words []string) error {
	type pair struct{ key, value string }
	var pairs []pair
	for _, w := range words {
		if key, value, ok := strings.Cut(w, "="); ok {
			pairs = append(pairs, pair{key: strings.ToLower(key), value: value})
			continue
		}
		if len(pairs) == 0 {
			return fmt.Errorf("无法解析 %q，应为 字段=值", w)
		}
		pairs[len(pairs)-1].value += " " + w
	}

	for _, p := range pairs {
		value := p.value
		switch p.key {
		case "name":
			req.Name = value
		case "code":
			req.Code = value
		case "teacher":
			req.Teacher = &value
		case "guardian1":
			req.Guardian1 = &value
		case "guardian2":
			req.Guardian2 = &value
		default:
			return fmt.Errorf("未知字段 %q", p.key)
		}
	}
	return nil
}
