package security

import (
	"os"
	"runtime"
)

// IsAdmin проверяет, запущена ли программа с административными правами.
//
// Сервис держит живое подключение к продакшен БД и исполняет произвольный
// (пусть и READ-ONLY) SQL, поэтому запуск от root/Administrator нежелателен.
//
// Unix/Linux/macOS: effective UID == 0 означает root.
// Windows: пробуем открыть защищенный системный ресурс (PHYSICALDRIVE0),
// доступный только администраторам.
func IsAdmin() bool {
	if runtime.GOOS == "windows" {
		file, err := os.Open("\\\\.\\PHYSICALDRIVE0")
		if err != nil {
			return false
		}
		file.Close()
		return true
	}
	return os.Geteuid() == 0
}

// CurrentUser возвращает имя текущего OS пользователя для атрибуции
// записей в истории запросов. "unknown" если определить не удалось.
func CurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
