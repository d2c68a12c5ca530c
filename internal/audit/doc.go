// Package audit хранит JSON-записи сбоев, сессий лечения и выполнений.
//
// Раскладка каталога:
//
//	{dir}/errors/{error_id}.json
//	{dir}/healing/{session_id}.json
//	{dir}/executions/{execution_id}.json
//	{dir}/executions/batch_{batch_id}.json
package audit
