package rowstore

import "errors"

var (
	// ErrSchema возвращается, если в таблице нет заголовка или нужной колонки.
	ErrSchema = errors.New("row store: schema mismatch")
	// ErrIO возвращается при ошибке обращения к хранилищу.
	ErrIO = errors.New("row store: backend unavailable")
	// ErrRowNotFound возвращается, если строка с указанным ключом отсутствует.
	ErrRowNotFound = errors.New("row store: row not found")
	// ErrInvalidRow возвращается при попытке записать запись в строку заголовка.
	ErrInvalidRow = errors.New("row store: invalid row number")
)
