package postgres

import "fmt"

// schema returns the idempotent DDL statements for the given embedding size.
// match_messages mirrors the procedure the hosted deployment exposes over RPC.
func schema(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chat_messages (
    id          BIGSERIAL PRIMARY KEY,
    content     TEXT        NOT NULL CHECK (content <> ''),
    is_user     BOOLEAN     NOT NULL,
    embedding   VECTOR(%d),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_unembedded
    ON chat_messages (id) WHERE embedding IS NULL`,
		fmt.Sprintf(`
CREATE OR REPLACE FUNCTION match_messages (
    query_embedding      VECTOR(%d),
    similarity_threshold FLOAT,
    match_count          INT
)
RETURNS TABLE (
    id          BIGINT,
    content     TEXT,
    is_user     BOOLEAN,
    similarity  FLOAT,
    created_at  TIMESTAMPTZ
)
LANGUAGE sql STABLE
AS $$
    SELECT m.id,
           m.content,
           m.is_user,
           1 - (m.embedding <=> query_embedding) AS similarity,
           m.created_at
    FROM   chat_messages m
    WHERE  m.embedding IS NOT NULL
      AND  1 - (m.embedding <=> query_embedding) > similarity_threshold
    ORDER  BY m.embedding <=> query_embedding
    LIMIT  match_count;
$$`, dimensions),
	}
}
