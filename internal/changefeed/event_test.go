package changefeed

import (
	"errors"
	"testing"

	"student-roster/internal/model"
)

func TestEncodeDecode_Insert(t *testing.T) {
	teacher := "Prof. Díaz"
	ev := Inserted(&model.Record{ID: 3, Name: "Ana Ruiz", Code: "X1", Teacher: &teacher, Attended1: true})

	data, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if got.Type != EventInsert || got.ID != 3 || got.Record == nil {
		t.Fatalf("解码结果不符: %+v", got)
	}
	if model.StringValue(got.Record.Teacher) != teacher || !got.Record.Attended1 {
		t.Errorf("记录字段丢失: %+v", got.Record)
	}
}

func TestDecode_PostgresTriggerPayload(t *testing.T) {
	// 与 notify_records_change() 触发器输出的结构一致
	payload := `{"type" : "update", "id" : 12, "record" : {"id":12,"name":"Luis","code":"AB1","teacher":null,"guardian1":"María","guardian2":null,"attended1":false,"attended2":true,"created_at":"2026-10-14T08:00:00.123456+00:00","updated_at":"2026-10-14T09:30:00+00:00"}, "at" : "2026-10-14T09:30:00.5+00:00"}`

	ev, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if ev.Type != EventUpdate || ev.Record.Code != "AB1" || !ev.Record.Attended2 {
		t.Errorf("解码结果不符: %+v", ev.Record)
	}
	if model.StringValue(ev.Record.Guardian1) != "María" || ev.Record.Teacher != nil {
		t.Errorf("可选字段解码不符: %+v", ev.Record)
	}
	if ev.Record.UpdatedAt.IsZero() {
		t.Error("updated_at 应被解析")
	}
}

func TestDecode_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"type":`,
		"unknown type":   `{"type":"truncate"}`,
		"insert no body": `{"type":"insert","id":1}`,
		"delete no id":   `{"type":"delete"}`,
		"id mismatch":    `{"type":"update","id":2,"record":{"id":3,"name":"x","code":"y"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(payload)); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("期望 ErrInvalidEvent，实际: %v", err)
			}
		})
	}
}

func TestDecode_InsertFillsIDFromRecord(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"insert","record":{"id":9,"name":"x","code":"y"}}`))
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if ev.ID != 9 {
		t.Errorf("期望 ID 由 record.id 补齐为 9，实际=%d", ev.ID)
	}
}
