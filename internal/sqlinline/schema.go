package sqlinline

// QLedgerSchema creates the ledger tables. It is idempotent and runs as a single
// simple-protocol statement batch.
const QLedgerSchema = `--sql 2888766a-20d6-4e63-8541-b101050a887c
create extension if not exists pgcrypto;

create table if not exists donations (
  id uuid primary key default gen_random_uuid(),
  seq bigint generated always as identity unique,
  amount numeric(14, 2) not null check (amount > 0),
  donor_id text,
  donor_name text not null,
  region text not null,
  impact_type text not null,
  anonymous boolean not null default false,
  status text not null default 'Verified',
  origin_country text not null default '',
  created_at timestamptz not null default clock_timestamp()
);

create index if not exists donations_donor_seq_idx on donations (donor_id, seq desc);

create table if not exists aggregate_counters (
  id text primary key,
  total_donations numeric(16, 2) not null default 0,
  unique_donors bigint not null default 0,
  funds_transferred numeric(16, 2) not null default 0,
  version bigint not null default 0,
  baseline_total numeric(16, 2) not null default 0,
  baseline_donors bigint not null default 0,
  updated_at timestamptz not null default now()
);

create or replace function donations_append_only() returns trigger
language plpgsql as $$
begin
  raise exception 'donations are append-only';
end;
$$;

drop trigger if exists donations_append_only on donations;
create trigger donations_append_only
  before update or delete on donations
  for each row execute function donations_append_only();
`
